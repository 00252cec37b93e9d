//go:build !linux

package affinity

func pin(int) error {
	return ErrUnsupported
}

func save() (func() error, error) {
	return func() error { return nil }, nil
}
