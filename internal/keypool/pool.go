package keypool

// Pool is the ordered set of credentials for one batch run.
// It is not safe for concurrent use; dispatch is sequential.
type Pool struct {
	creds []*Credential
}

// NewPool builds a pool from already-cleaned keys.
func NewPool(keys []string) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}
	p := &Pool{creds: make([]*Credential, 0, len(keys))}
	for _, k := range keys {
		p.creds = append(p.creds, NewCredential(k))
	}
	return p, nil
}

// NewPoolFromText cleans raw text and builds a pool. Malformed input is
// reported here, before any network call.
func NewPoolFromText(raw string, shape Shape) (*Pool, ParseResult, error) {
	parsed := Parse(raw, shape)
	if len(parsed.Keys) == 0 {
		if parsed.Rejected > 0 {
			return nil, parsed, ErrMalformedCredentials
		}
		return nil, parsed, ErrNoCredentials
	}
	pool, err := NewPool(parsed.Keys)
	return pool, parsed, err
}

// NewPoolFromCredentials builds a pool from validated credentials,
// skipping those known to be invalid. Order is preserved.
func NewPoolFromCredentials(creds []Credential) (*Pool, error) {
	p := &Pool{}
	for i := range creds {
		if !creds[i].Usable() {
			continue
		}
		c := creds[i]
		p.creds = append(p.creds, &c)
	}
	if len(p.creds) == 0 {
		return nil, ErrNoCredentials
	}
	return p, nil
}

// Len returns the number of credentials left in the pool.
func (p *Pool) Len() int {
	return len(p.creds)
}

// At returns the credential at index i.
func (p *Pool) At(i int) *Credential {
	return p.creds[i]
}

// Remove drops the credential at index i for the rest of the run.
func (p *Pool) Remove(i int) {
	p.creds = append(p.creds[:i], p.creds[i+1:]...)
}

// Credentials returns a snapshot of the pool.
func (p *Pool) Credentials() []Credential {
	out := make([]Credential, len(p.creds))
	for i, c := range p.creds {
		out[i] = *c
	}
	return out
}
