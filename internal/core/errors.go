package core

import "errors"

// Persistence and authentication failures. Backends translate driver errors
// into these at their boundary so callers only ever compare against them.
var (
	ErrNotFound           = errors.New("no stored data")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyInUse  = errors.New("email already in use")
	ErrWeakPassword       = errors.New("weak password")
	ErrUnknown            = errors.New("unknown error")
	ErrTimeout            = errors.New("backend timeout")
	ErrNoActiveUser       = errors.New("no active user")
)

// IsValidation reports whether err is one of the input validation errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrEmptyDescription, ErrEmptyCategory,
		ErrInvalidType, ErrEmptyTitle, ErrDescriptionLong, ErrEmptyName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// UserMessage maps an error to the message shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "E-mail ou senha incorretos."
	case errors.Is(err, ErrEmailAlreadyInUse):
		return "Este e-mail já está em uso."
	case errors.Is(err, ErrWeakPassword):
		return "A senha deve ter pelo menos 6 caracteres."
	case errors.Is(err, ErrStorageUnavailable):
		return "Serviço indisponível. Tente novamente mais tarde."
	case errors.Is(err, ErrTimeout):
		return "O servidor demorou para responder. Tente novamente."
	case errors.Is(err, ErrNoActiveUser):
		return "Faça login para continuar."
	case errors.Is(err, ErrInvalidAmount):
		return "Informe um valor válido maior que zero."
	case errors.Is(err, ErrEmptyDescription):
		return "Informe uma descrição."
	case errors.Is(err, ErrDescriptionLong):
		return "A descrição deve ter no máximo 200 caracteres."
	case errors.Is(err, ErrEmptyCategory):
		return "Selecione uma categoria."
	case errors.Is(err, ErrInvalidType):
		return "Tipo de transação inválido."
	case errors.Is(err, ErrEmptyTitle):
		return "Informe o nome da meta."
	case errors.Is(err, ErrEmptyName):
		return "Informe seu nome."
	default:
		return "Ocorreu um erro. Tente novamente."
	}
}
