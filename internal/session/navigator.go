package session

import "context"

// Destination is where the front end should take the user after the session
// ends.
type Destination string

const (
	DestinationLanding Destination = "/"
	DestinationLogin   Destination = "/login"
)

// Navigator receives navigation signals: DestinationLanding after Logout and
// DestinationLogin after a failed refresh.
type Navigator interface {
	Navigate(ctx context.Context, to Destination)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, to Destination)

func (f NavigatorFunc) Navigate(ctx context.Context, to Destination) {
	f(ctx, to)
}

type nopNavigator struct{}

func (nopNavigator) Navigate(context.Context, Destination) {}
