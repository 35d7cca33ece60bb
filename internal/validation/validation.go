// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/mmeshcher/comanda/internal/model"
)

const (
	MaxItemNameLen = 100
	MaxTextLen     = 500
	MaxItemQty     = 999
	MaxItems       = 100
	// MaxUnitPrice ограничивает цену так, что итог заказа из MaxItems позиций
	// по MaxItemQty штук не выходит за пределы int64.
	MaxUnitPrice = math.MaxInt64 / (MaxItems * MaxItemQty)
)

// Items проверяет позиции заказа: хотя бы одна, количество ≥ 1, цена в допустимом диапазоне, непустое название.
func Items(items []model.ItemSnapshot) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", model.ErrValidation)
	}
	if len(items) > MaxItems {
		return fmt.Errorf("%w: order has %d items, at most %d allowed", model.ErrValidation, len(items), MaxItems)
	}

	for i, it := range items {
		if err := Item(it); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	return nil
}

// Item проверяет одну позицию.
func Item(it model.ItemSnapshot) error {
	name := strings.TrimSpace(it.Name)
	if name == "" {
		return fmt.Errorf("%w: product name is empty", model.ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxItemNameLen {
		return fmt.Errorf("%w: product name longer than %d characters", model.ErrValidation, MaxItemNameLen)
	}
	if it.Quantity < 1 || it.Quantity > MaxItemQty {
		return fmt.Errorf("%w: quantity %d must be in range [1, %d]", model.ErrValidation, it.Quantity, MaxItemQty)
	}
	if it.UnitPrice < 0 || it.UnitPrice > MaxUnitPrice {
		return fmt.Errorf("%w: unit price %d must be in range [0, %d]", model.ErrValidation, it.UnitPrice, MaxUnitPrice)
	}
	if err := Text("restriction", it.Restriction); err != nil {
		return err
	}
	return Text("note", it.Note)
}

// Text ограничивает длину свободного текста.
func Text(field, value string) error {
	if utf8.RuneCountInString(value) > MaxTextLen {
		return fmt.Errorf("%w: %s longer than %d characters", model.ErrValidation, field, MaxTextLen)
	}
	return nil
}

// PaymentMethod проверяет, что способ оплаты указан и разрешён.
// Пустой список allowed разрешает любой непустой способ.
func PaymentMethod(method string, allowed []string) error {
	if strings.TrimSpace(method) == "" {
		return fmt.Errorf("%w: payment method is required", model.ErrValidation)
	}
	if len(allowed) > 0 && !slices.Contains(allowed, method) {
		return fmt.Errorf("%w: payment method %q is not one of %s", model.ErrValidation, method, strings.Join(allowed, ", "))
	}
	return nil
}
