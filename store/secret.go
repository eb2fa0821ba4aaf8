package store

// Secret is an encrypted credential. The store never sees plaintext.
type Secret struct {
	Key        string
	Ciphertext []byte
	UpdatedTs  int64
}

// FindSecret specifies the conditions for finding a secret.
type FindSecret struct {
	Key string
}

// DeleteSecret specifies the secret to remove.
type DeleteSecret struct {
	Key string
}
