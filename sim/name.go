package sim

import (
	"fmt"
	"strings"
)

// ComponentNameMustBeValid panics if the name does not follow the component
// naming convention. A component name is a dot-separated hierarchy of
// capitalized CamelCase elements, for example "Canopy" or "Upper.Soilzone".
func ComponentNameMustBeValid(name string) {
	if err := checkComponentName(name); err != nil {
		panic(fmt.Sprintf("component name %q is not valid: %s", name, err))
	}
}

// VariableNameMustBeValid panics if the name is not a lower snake_case
// variable name, for example "hru_rain".
func VariableNameMustBeValid(name string) {
	if err := checkVariableName(name); err != nil {
		panic(fmt.Sprintf("variable name %q is not valid: %s", name, err))
	}
}

// BuildName builds a name from a parent name and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

func checkComponentName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}

	for _, elem := range strings.Split(name, ".") {
		if elem == "" {
			return fmt.Errorf("name element must not be empty")
		}

		if strings.ContainsAny(elem, "_\"'- ") {
			return fmt.Errorf("name element %q contains an invalid character",
				elem)
		}

		if elem[0] < 'A' || elem[0] > 'Z' {
			return fmt.Errorf("name element %q must start with a capital letter",
				elem)
		}
	}

	return nil
}

func checkVariableName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}

	if name[0] < 'a' || name[0] > 'z' {
		return fmt.Errorf("name must start with a lower case letter")
	}

	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return fmt.Errorf("character %q is not allowed", c)
		}
	}

	return nil
}

// ValidateComponentName returns an error if the name does not follow the
// component naming convention.
func ValidateComponentName(name string) error {
	if err := checkComponentName(name); err != nil {
		return fmt.Errorf("component name %q is not valid: %s: %w",
			name, err, ErrConstruction)
	}

	return nil
}
