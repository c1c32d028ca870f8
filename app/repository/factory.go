package repository

import (
	"gorm.io/gorm"
)

// Repositories bundles the repositories built on one database handle. Build
// it on a transaction to get repositories that take part in it.
type Repositories struct {
	User     UserRepository
	Setting  SettingRepository
	Activity ActivityRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:     NewUserRepository(db),
		Setting:  NewSettingRepository(db),
		Activity: NewActivityRepository(db),
	}
}
