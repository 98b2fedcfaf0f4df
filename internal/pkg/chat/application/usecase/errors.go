package usecase

import "errors"

// ErrPersistence wraps durable-store failures so controllers can map them to
// a transport status without inspecting driver errors.
var ErrPersistence = errors.New("persistence error")
