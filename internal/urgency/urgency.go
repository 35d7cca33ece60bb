// Package urgency вычисляет степень просрочки заказа на кухне.
package urgency

import (
	"fmt"
	"time"
)

// Tier описывает уровень срочности тикета.
type Tier string

const (
	Normal   Tier = "normal"
	Warning  Tier = "warning"
	Urgent   Tier = "urgent"
	Critical Tier = "critical"
)

// Thresholds задаёт границы уровней в целых минутах.
// Warning и Urgent задают минуту, с которой начинается уровень; Critical задаёт последнюю минуту уровня urgent.
type Thresholds struct {
	Warning  int
	Urgent   int
	Critical int
}

// DefaultThresholds возвращает границы 5/7/8 минут.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 5, Urgent: 7, Critical: 8}
}

// ElapsedMinutes возвращает число целых минут с момента создания.
// Отрицательная разница (расхождение часов) считается нулевой.
func ElapsedMinutes(createdAt, now time.Time) int {
	d := now.Sub(createdAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// Tier вычисляет уровень срочности по времени создания и текущему времени сервера.
func (t Thresholds) Tier(createdAt, now time.Time) Tier {
	m := ElapsedMinutes(createdAt, now)
	switch {
	case m > t.Critical:
		return Critical
	case m >= t.Urgent:
		return Urgent
	case m >= t.Warning:
		return Warning
	default:
		return Normal
	}
}

// Alert сообщает, что уровень требует мигающей индикации и звукового сигнала.
func (t Tier) Alert() bool {
	return t == Critical
}

// Validate проверяет, что границы неотрицательны и упорядочены.
func (t Thresholds) Validate() error {
	if t.Warning < 0 || t.Warning >= t.Urgent || t.Urgent > t.Critical {
		return fmt.Errorf("thresholds must satisfy 0 <= warning < urgent <= critical, got %d/%d/%d",
			t.Warning, t.Urgent, t.Critical)
	}
	return nil
}
