package session

// Composite writes to every store and reads from the first. A write failure
// in any store fails the whole write; reads fall through to later stores only
// when the first reports not-found.
type Composite struct {
	stores []Store
}

// NewComposite wraps one or more stores. The first is the read source.
func NewComposite(stores ...Store) *Composite {
	return &Composite{stores: stores}
}

func (c *Composite) Save(s *Session) error {
	for _, st := range c.stores {
		if err := st.Save(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composite) Load(id string) (*Session, error) {
	var lastErr error = ErrNotFound
	for _, st := range c.stores {
		s, err := st.Load(id)
		if err == nil {
			return s, nil
		}
		lastErr = err
		if err != ErrNotFound {
			break
		}
	}
	return nil, lastErr
}

func (c *Composite) List() ([]Summary, error) {
	if len(c.stores) == 0 {
		return nil, nil
	}
	return c.stores[0].List()
}

func (c *Composite) Delete(id string) error {
	found := false
	for _, st := range c.stores {
		switch err := st.Delete(id); err {
		case nil:
			found = true
		case ErrNotFound:
		default:
			return err
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (c *Composite) Close() error {
	var first error
	for _, st := range c.stores {
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
