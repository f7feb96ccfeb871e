//go:build !unix

package transfers

func classifyErrno(err error) error {
	return nil
}
