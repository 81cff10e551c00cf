// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки админ-панели
var (
	// ErrNotOperator — пользователь не является оператором
	ErrNotOperator = errors.New("у вас нет прав оператора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrLoginDisabled — ADMIN_PASSWORD_HASH не задан
	ErrLoginDisabled = errors.New("вход по паролю отключён")
)
