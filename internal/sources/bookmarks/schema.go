package bookmarks

import "gopkg.in/yaml.v3"

// Entry holds the properties of one Homepage bookmark or service.
type Entry struct {
	Href        string `yaml:"href"`
	Abbr        string `yaml:"abbr,omitempty"`
	Icon        string `yaml:"icon,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Group is one top level group of a Homepage file:
//
//	- GroupName:
//	    - ItemName: [{ href, abbr }]   # bookmarks.yaml
//	    - ItemName: { href, icon }     # services.yaml
//
// Items are kept as raw nodes so both layouts decode through one schema.
type Group map[string][]map[string]yaml.Node

// File is the root of a Homepage bookmarks.yaml or services.yaml.
type File []Group
