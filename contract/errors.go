package contract

import "fmt"

// MissingSymbolError reports a shared library that does not export a symbol
// this runtime requires. Typical cause: the module was built without the
// discovery feature, or it is not a module for this host at all.
type MissingSymbolError struct {
	Path   string
	Symbol string
	Detail string
}

func (e *MissingSymbolError) Error() string {
	return fmt.Sprintf("module %s does not export %q (%s); rebuild the module against this host",
		e.Path, e.Symbol, e.Detail)
}

// VersionMismatchError reports a contract record carrying an unexpected
// version tag. No function pointer from such a record was or will be called.
type VersionMismatchError struct {
	Path     string
	Expected uint32
	Found    uint32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("module %s reports contract version %d, host expects %d; rebuild the module against this host",
		e.Path, e.Found, e.Expected)
}

// validateVersion enforces the version gate. Kept separate from the dlopen
// plumbing so the rule is testable without a compiled fixture.
func validateVersion(path string, found uint32) error {
	if found != Version {
		return &VersionMismatchError{Path: path, Expected: Version, Found: found}
	}
	return nil
}
