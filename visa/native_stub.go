//go:build !visa

package visa

func openNative(res Resource, cfg Config) (link, error) {
	return nil, ErrNativeUnavailable
}
