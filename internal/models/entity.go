package models

// Route actions for an entity type received in a change notification.
const (
	ActionLoad         = "load"
	ActionReloadParent = "reload_parent"
	ActionIgnore       = "ignore"
)

// EntityDefinition describes one entity collection the device tracks and
// how inbound changes for it are routed. Loaded from the entity registry
// file at startup.
type EntityDefinition struct {
	Name       string `yaml:"name"`
	Collection string `yaml:"collection"`
	Action     string `yaml:"action"`
	// Parent names the owning entity type for reload_parent routes, e.g.
	// a lookup group item reloads its owning lookup group.
	Parent      string `yaml:"parent,omitempty"`
	ParentField string `yaml:"parent_field,omitempty"`
}
