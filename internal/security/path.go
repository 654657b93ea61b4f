package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinBoundary ensures that targetPath is within or equal to boundaryPath,
// so fragment and data files named in flows cannot escape the project via "../".
//
//	boundary := "/srv/suite"
//	target := "/srv/suite/fragments/auth.yaml"  // ok
//	target := "/srv/suite/../../etc/passwd"     // rejected
func ValidatePathWithinBoundary(boundaryPath, targetPath string) error {
	absBoundary, err := filepath.Abs(boundaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("failed to resolve target path %q: %w", targetPath, err)
	}

	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("path traversal detected: %q escapes boundary %q", targetPath, boundaryPath)
	}

	return nil
}

// ValidatePathsWithinBoundary validates multiple target paths against a single boundary.
// Returns the first validation error encountered.
func ValidatePathsWithinBoundary(boundaryPath string, targetPaths ...string) error {
	for _, target := range targetPaths {
		if err := ValidatePathWithinBoundary(boundaryPath, target); err != nil {
			return err
		}
	}
	return nil
}

// ResolveWithin joins a relative name onto base and checks the result stays
// inside base. Absolute names are checked as given.
func ResolveWithin(base, name string) (string, error) {
	target := name
	if !filepath.IsAbs(name) {
		target = filepath.Join(base, name)
	}
	if err := ValidatePathWithinBoundary(base, target); err != nil {
		return "", err
	}
	return filepath.Clean(target), nil
}
