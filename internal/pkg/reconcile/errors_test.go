package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestHTTPStatus(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"authentication", Authentication("verify", cause), http.StatusUnauthorized},
		{"not found", NotFound("apply", cause), http.StatusNotFound},
		{"transient", Transient("apply", cause), http.StatusServiceUnavailable},
		{"validation", Validation("parse", cause), http.StatusBadRequest},
		{"wrapped kind", fmt.Errorf("handler: %w", Validation("parse", cause)), http.StatusBadRequest},
		{"deadline", fmt.Errorf("apply: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"plain", cause, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("op", nil))
	assert.True(t, IsKind(Classify("op", gorm.ErrRecordNotFound), KindNotFound))
	assert.True(t, IsKind(Classify("op", errors.New("connection reset")), KindTransient))

	validation := Validation("inner", errors.New("bad"))
	assert.Same(t, validation, Classify("outer", validation))
}

func TestErrorUnwrapAndMessage(t *testing.T) {
	cause := errors.New("signature mismatch")
	err := Authentication("stripe.verify", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "stripe.verify: authentication: signature mismatch", err.Error())
	assert.Equal(t, "apply: not_found", NewError(KindNotFound, "apply", nil).Error())
	assert.False(t, IsKind(nil, KindInternal))
}

func TestResultChanged(t *testing.T) {
	assert.True(t, Result{Action: ActionUpdated}.Changed())
	assert.True(t, Result{Action: ActionCreated}.Changed())
	assert.False(t, Noop("docusign", "envelope", "terminal").Changed())
	assert.False(t, Result{Action: ActionDuplicate}.Changed())
}
