package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrProductNotFound         = errors.New("product not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrSettingNotFound         = errors.New("setting not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrEmptyOrder              = errors.New("order has no items")
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrOptimisticLockFailed    = errors.New("optimistic lock failed")
	ErrLockTimeout             = errors.New("lock timeout")
)

// StockError reports which product could not cover the requested quantity.
// It matches errors.Is(err, ErrInsufficientStock).
type StockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
