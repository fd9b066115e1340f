package models

// Application is an independently running backend service known to the provisioner.
type Application struct {
	Name    string `json:"name"`
	BaseURI string `json:"homepage"`
}

// AssignedApplication references an Application from a tenant.
type AssignedApplication struct {
	Name string `json:"name"`
}

// AssignedApplicationsFor builds the assignment list for the given application names.
func AssignedApplicationsFor(names ...string) []AssignedApplication {
	assigned := make([]AssignedApplication, 0, len(names))
	for _, name := range names {
		assigned = append(assigned, AssignedApplication{Name: name})
	}
	return assigned
}
