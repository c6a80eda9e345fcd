package user

// User is the owner of a set of calendar events. Users are not stored; they are
// resolved from the bearer tokens configured under auth.tokens.
type User struct {
	Name string
}
