package service

// Regressor maps one feature row, ordered as the bundle's feature columns,
// to one scalar. Implementations hold no per-call state and are safe for
// concurrent use.
type Regressor interface {
	Predict(features []float64) (float64, error)
	Kind() string
}
