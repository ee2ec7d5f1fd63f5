package deps

// ProbeRequirements lists the commands used to gather process context and
// fetch the classifier credential. needSetec is false when the service key
// comes from the environment or remote learning is disabled.
func ProbeRequirements(setecBinary string, needSetec bool) []Requirement {
	if setecBinary == "" {
		setecBinary = "setec"
	}
	return []Requirement{
		{
			Name:        "ps",
			Command:     "ps",
			Description: "Reads full command lines of listening processes",
		},
		{
			Name:        "lsof",
			Command:     "lsof",
			Description: "Finds working directories of listening processes",
			Optional:    true,
		},
		{
			Name:        "docker",
			Command:     "docker",
			Description: "Reads compose labels of published containers",
			Optional:    true,
		},
		{
			Name:        "mdls",
			Command:     "mdls",
			Description: "Reads app bundle names from Spotlight metadata",
			Optional:    true,
			Platforms:   []string{"darwin"},
		},
		{
			Name:        "setec",
			Command:     setecBinary,
			Description: "Fetches the ICA service key",
			Optional:    !needSetec,
		},
	}
}
