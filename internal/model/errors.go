package model

import "errors"

// Классы ошибок доменных операций. Конкретные ошибки оборачивают их через %w
// и поясняют, какое правило заблокировало операцию.
var (
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition возвращается, если переход недостижим из текущего состояния.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConflict возвращается, если параллельная операция сделала запрос неактуальным.
	ErrConflict = errors.New("conflict")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается, если у участника нет права на операцию.
	ErrForbidden = errors.New("forbidden")
)
