package accounts

// AccountIdentity adapts an Account into the Identity interface for
// token generation. The email is carried separately since the stored
// credential value may be sealed.
type AccountIdentity struct {
	account *Account
	email   string
}

// NewIdentityFromAccount returns an Identity adapter for the account.
func NewIdentityFromAccount(account *Account, email string) Identity {
	if account == nil {
		return nil
	}
	return AccountIdentity{account: account, email: email}
}

// ID returns the account's ID as a string.
func (a AccountIdentity) ID() string {
	if a.account == nil {
		return ""
	}
	return a.account.ID.String()
}

// Name returns the account's display name.
func (a AccountIdentity) Name() string {
	if a.account == nil {
		return ""
	}
	return a.account.Name
}

// Email returns the plaintext email address.
func (a AccountIdentity) Email() string {
	return a.email
}

// Role returns the account's role name.
func (a AccountIdentity) Role() string {
	if a.account == nil {
		return ""
	}
	return a.account.Role
}

// Status returns the account's lifecycle status.
func (a AccountIdentity) Status() AccountStatus {
	if a.account == nil {
		return ""
	}
	a.account.EnsureStatus()
	return a.account.Status
}
