package api

import "github.com/formapi/formapi/pkg/store"

// ActionInfo describes one installable action kind: what it is called,
// when it runs, and the settings form a client renders to configure it.
type ActionInfo struct {
	Name        string         `json:"name"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Priority    int            `json:"priority"`
	Default     bool           `json:"default"`
	Defaults    store.Document `json:"defaults,omitempty"`

	// SettingsComponents are the form components for this kind's settings.
	SettingsComponents []map[string]interface{} `json:"-"`
}

// ActionKinds returns the installable action kinds. Kinds marked Default
// are created automatically on every new form.
func ActionKinds() map[string]ActionInfo {
	return map[string]ActionInfo{
		"save": {
			Name:        "save",
			Title:       "Save Submission",
			Description: "Saves the submission into the database.",
			Priority:    10,
			Default:     true,
			Defaults: store.Document{
				"handler": []interface{}{"before"},
				"method":  []interface{}{"create", "update"},
			},
		},
		"webhook": {
			Name:        "webhook",
			Title:       "Webhook",
			Description: "Calls an external URL when the action fires.",
			Priority:    0,
			Defaults: store.Document{
				"handler": []interface{}{"after"},
				"method":  []interface{}{"create", "update", "delete"},
			},
			SettingsComponents: []map[string]interface{}{
				{
					"type":  "textfield",
					"key":   "url",
					"label": "Webhook URL",
					"validate": map[string]interface{}{
						"required": true,
					},
				},
				{
					"type":  "select",
					"key":   "method",
					"label": "Request Method",
					"data": map[string]interface{}{
						"values": []interface{}{"GET", "POST", "PUT", "DELETE"},
					},
				},
			},
		},
		"role": {
			Name:        "role",
			Title:       "Role Assignment",
			Description: "Assigns a role to the submission owner.",
			Priority:    1,
			Defaults: store.Document{
				"handler": []interface{}{"after"},
				"method":  []interface{}{"create"},
			},
			SettingsComponents: []map[string]interface{}{
				{
					"type":  "select",
					"key":   "role",
					"label": "Role",
					"data": map[string]interface{}{
						"resource": "role",
					},
				},
			},
		},
	}
}
