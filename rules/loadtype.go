package rules

import "fmt"

// LoadType describes how a rule-pack identifier is resolved to rule content
type LoadType int

const (
	// LoadTypeDirectory scans every file directly inside a directory
	LoadTypeDirectory LoadType = iota + 1
	// LoadTypeName looks the identifier up in the named pack store
	LoadTypeName
	// LoadTypeFile reads a single file verbatim
	LoadTypeFile
	// LoadTypeClass looks a dotted path up in the class registry
	LoadTypeClass
)

var loadTypeTags = map[LoadType]string{
	LoadTypeDirectory: "dir",
	LoadTypeName:      "name",
	LoadTypeFile:      "file",
	LoadTypeClass:     "class",
}

// ParseLoadType converts a lowercase tag ("dir", "name", "file", "class") to a LoadType
func ParseLoadType(tag string) (LoadType, error) {
	switch tag {
	case "dir":
		return LoadTypeDirectory, nil
	case "name":
		return LoadTypeName, nil
	case "file":
		return LoadTypeFile, nil
	case "class":
		return LoadTypeClass, nil
	}
	return 0, &Error{
		Kind:  KindInvalidLoadType,
		Stage: StageRequest,
		Err:   fmt.Errorf("invalid load type %q (must be one of: dir, name, file, class)", tag),
	}
}

// String returns the tag accepted by ParseLoadType
func (t LoadType) String() string {
	if tag, ok := loadTypeTags[t]; ok {
		return tag
	}
	return fmt.Sprintf("LoadType(%d)", int(t))
}

// Valid reports whether t is one of the four load types
func (t LoadType) Valid() bool {
	_, ok := loadTypeTags[t]
	return ok
}

// ProcessMode selects what the processor produces from a pack
type ProcessMode int

const (
	// ModeSummarize produces a deterministic textual summary
	ModeSummarize ProcessMode = iota + 1
	// ModeNormalize rewrites every pattern to its canonical form
	ModeNormalize
	// ModeValidate compiles every pattern and reports the invalid ones
	ModeValidate
)

// ParseProcessMode converts "summarize", "normalize" or "validate" to a ProcessMode
func ParseProcessMode(tag string) (ProcessMode, error) {
	switch tag {
	case "summarize":
		return ModeSummarize, nil
	case "normalize":
		return ModeNormalize, nil
	case "validate":
		return ModeValidate, nil
	}
	return 0, &Error{
		Kind:  KindInvalidMode,
		Stage: StageRequest,
		Err:   fmt.Errorf("invalid process mode %q (must be one of: summarize, normalize, validate)", tag),
	}
}

// String returns the tag accepted by ParseProcessMode
func (m ProcessMode) String() string {
	switch m {
	case ModeSummarize:
		return "summarize"
	case ModeNormalize:
		return "normalize"
	case ModeValidate:
		return "validate"
	}
	return fmt.Sprintf("ProcessMode(%d)", int(m))
}
