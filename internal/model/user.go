// Package model defines the user profile and the value objects it is built
// from. Every value here is validated at construction; an invalid instance
// cannot be created through the exported API.
package model

// User is the profile of a Telegram user who signed in through the Mini-App.
//
// User is immutable: fields are unexported and the With* methods return a
// modified copy. Identity is ID(); two Users with the same ID describe the
// same person even when other attributes differ.
type User struct {
	id           UserID
	username     Username
	firstName    FirstName
	lastName     LastName
	languageCode LanguageCode
	photoURL     PhotoURL
}

// NewUser assembles a User from already-validated value objects.
func NewUser(
	id UserID,
	username Username,
	firstName FirstName,
	lastName LastName,
	languageCode LanguageCode,
	photoURL PhotoURL,
) User {
	return User{
		id:           id,
		username:     username,
		firstName:    firstName,
		lastName:     lastName,
		languageCode: languageCode,
		photoURL:     photoURL,
	}
}

// UserInput carries raw, unvalidated profile fields. Nil pointers mean
// "absent".
type UserInput struct {
	ID           int64
	FirstName    string
	LastName     *string
	Username     *string
	LanguageCode *string
	PhotoURL     *string
}

// BuildUser validates every field of in and returns the first
// *ValidationError encountered.
func BuildUser(in UserInput) (User, error) {
	id, err := NewUserID(in.ID)
	if err != nil {
		return User{}, err
	}
	firstName, err := NewFirstName(in.FirstName)
	if err != nil {
		return User{}, err
	}
	lastName, err := NewLastName(in.LastName)
	if err != nil {
		return User{}, err
	}
	username, err := NewUsername(in.Username)
	if err != nil {
		return User{}, err
	}
	languageCode, err := NewLanguageCode(in.LanguageCode)
	if err != nil {
		return User{}, err
	}
	photoURL, err := NewPhotoURL(in.PhotoURL)
	if err != nil {
		return User{}, err
	}
	return NewUser(id, username, firstName, lastName, languageCode, photoURL), nil
}

func (u User) ID() UserID                 { return u.id }
func (u User) Username() Username         { return u.username }
func (u User) FirstName() FirstName       { return u.firstName }
func (u User) LastName() LastName         { return u.lastName }
func (u User) LanguageCode() LanguageCode { return u.languageCode }
func (u User) PhotoURL() PhotoURL         { return u.photoURL }

// SameIdentity reports whether u and other refer to the same user.
func (u User) SameIdentity(other User) bool { return u.id == other.id }

func (u User) WithUsername(v Username) User {
	u.username = v
	return u
}

func (u User) WithFirstName(v FirstName) User {
	u.firstName = v
	return u
}

func (u User) WithLastName(v LastName) User {
	u.lastName = v
	return u
}

func (u User) WithLanguageCode(v LanguageCode) User {
	u.languageCode = v
	return u
}

func (u User) WithPhotoURL(v PhotoURL) User {
	u.photoURL = v
	return u
}
