package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ManuelReschke/ClientHub/internal/pkg/config"
	"github.com/ManuelReschke/ClientHub/internal/pkg/database"
	"github.com/ManuelReschke/ClientHub/internal/pkg/env"
	"github.com/ManuelReschke/ClientHub/internal/pkg/invoicing"
	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
)

// Replaces the line items of a draft invoice with a JSON array read from stdin:
//
//	invoice-items 42 < items.json
func main() {
	env.SetupEnvFile()
	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.Log.Level, Production: cfg.IsProduction()})
	defer func() { _ = log.Sync() }()

	if len(os.Args) != 2 {
		fmt.Println("Usage: invoice-items <invoice-id> < items.json")
		os.Exit(1)
	}
	id, err := strconv.ParseUint(os.Args[1], 10, 64)
	if err != nil {
		log.Fatal("invalid invoice id", zap.String("id", os.Args[1]), zap.Error(err))
	}

	items, err := invoicing.DecodeItems(os.Stdin)
	if err != nil {
		log.Fatal("read items", zap.Error(err))
	}

	db, err := database.SetupDatabase(cfg.Database, log)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	inv, err := invoicing.NewService(db, log).ReplaceItems(ctx, uint(id), items)
	if err != nil {
		log.Fatal("replace invoice items", zap.Uint64("invoice_id", id), zap.Error(err))
	}
	fmt.Printf("%s: %d items, total %d %s cents\n", inv.Number, len(inv.Items), inv.TotalCents, inv.Currency)
}
