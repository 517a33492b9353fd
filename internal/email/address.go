package email

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Email string `json:"email" yaml:"email"`
}

// String renders the address as "name <email>", or the bare email when no
// name is set.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}

	return a.Name + " <" + a.Email + ">"
}

// IsZero reports whether the address has no email.
func (a Address) IsZero() bool { return a.Email == "" }

// AddressList is an ordered list of addresses.
type AddressList []Address

// Join renders the list as a comma-separated header value.
func (l AddressList) Join() string {
	parts := make([]string, len(l))
	for i, a := range l {
		parts[i] = a.String()
	}

	return strings.Join(parts, ", ")
}

// Emails returns the bare email of every address.
func (l AddressList) Emails() []string {
	out := make([]string, len(l))
	for i, a := range l {
		out[i] = a.Email
	}

	return out
}

// Normalize resolves any accepted address input shape into a list:
// nil, a bare email string, an Address, a slice of strings, a slice of
// Addresses, or a mixed slice. Decoded JSON/YAML objects with "name" and
// "email" keys are accepted as Addresses. Absent or empty input yields nil;
// unrecognised elements are skipped.
func Normalize(input any) AddressList {
	var out AddressList

	switch v := input.(type) {
	case nil:
	case string:
		if v != "" {
			out = AddressList{{Email: v}}
		}
	case Address:
		out = AddressList{v}
	case *Address:
		if v != nil {
			out = AddressList{*v}
		}
	case []string:
		for _, s := range v {
			out = append(out, Address{Email: s})
		}
	case []Address:
		out = append(out, v...)
	case AddressList:
		out = append(out, v...)
	case map[string]any:
		if a, ok := addressFromMap(v); ok {
			out = AddressList{a}
		}
	case []any:
		for _, item := range v {
			out = append(out, Normalize(item)...)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

func addressFromMap(m map[string]any) (Address, bool) {
	addr, _ := m["email"].(string)
	if addr == "" {
		return Address{}, false
	}
	name, _ := m["name"].(string)

	return Address{Name: name, Email: addr}, true
}

// UnmarshalJSON accepts a bare email string or a {name, email} object.
func (a *Address) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	return a.assign(raw)
}

// UnmarshalYAML accepts a bare email string or a {name, email} mapping.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}

	return a.assign(raw)
}

// assign sets a from raw. Null and empty input leave the zero Address.
func (a *Address) assign(raw any) error {
	list := Normalize(raw)
	if len(list) == 0 {
		*a = Address{}
		return nil
	}
	if len(list) != 1 {
		return fmt.Errorf("email: expected a single address, got %d", len(list))
	}
	*a = list[0]

	return nil
}

// UnmarshalJSON accepts any shape understood by Normalize.
func (l *AddressList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Normalize(raw)

	return nil
}

// UnmarshalYAML accepts any shape understood by Normalize.
func (l *AddressList) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*l = Normalize(raw)

	return nil
}
