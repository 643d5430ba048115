package library

import "errors"

// Precondition errors, checked in this order before any request is made.
var (
	ErrNoLibraryID = errors.New("no library ID found, please check your settings")
	ErrNoServerURL = errors.New("no server URL found, please login again")
	ErrNoAuthToken = errors.New("no authentication token found, please login again")
)
