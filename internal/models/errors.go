package models

import "errors"

// ErrMealNotFound is returned by meal stores when no record matches.
var ErrMealNotFound = errors.New("meal not found")
