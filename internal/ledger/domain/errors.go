package domain

import "errors"

// Taxonomia de erros do ledger. Toda violação de precondição é detectada
// antes de qualquer mutação e devolvida tipada ao chamador.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrMarketNotFound      = errors.New("market not found")
	ErrMarketNotOpen       = errors.New("market not open")
	ErrInvalidTransition   = errors.New("invalid market transition")
	ErrSelectionMismatch   = errors.New("selection does not belong to market")
	ErrInvalidMarketSpec   = errors.New("invalid market spec")
	ErrInvalidStake        = errors.New("invalid stake")
	ErrBetNotFound         = errors.New("bet not found")
	ErrSelectionNotFound   = errors.New("selection not found")
	ErrTransactionConflict = errors.New("transaction conflict") // colisão de escrita concorrente; retry seguro
)
