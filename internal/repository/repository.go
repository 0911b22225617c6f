package repository

import "errors"

// ErrNotFound normaliza el "no existe" de los distintos drivers para
// que los services no dependan de pgx ni de pebble.
var ErrNotFound = errors.New("repository: not found")
