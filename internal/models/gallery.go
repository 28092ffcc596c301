package models

// GalleryEntry is one known face: the lower-cased reference filename stem and
// its embedding. Ordinal is the position in scan order and breaks distance
// ties.
type GalleryEntry struct {
	Name      string    `json:"name" db:"name"`
	Embedding []float32 `json:"-" db:"embedding"`
	Ordinal   int       `json:"ordinal" db:"ordinal"`
}
