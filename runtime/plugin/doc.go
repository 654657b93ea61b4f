// Package plugin is the surface plugin authors build against.
//
// Plugins import this package, not runtime. A plugin is a struct whose
// exported methods with a function signature are registered as
// "<plugin>.<method>", with the first letter of the method lowered:
//
//	type PetsPlugin struct {
//	    Config Config
//	}
//
//	// pets.adopt
//	func (p *PetsPlugin) Adopt(call *plugin.Call, args plugin.Input) (plugin.Output, error) {
//	    name := args["name"].(string)
//	    return plugin.Output{"adopted": name}, nil
//	}
//
// Typed methods take and return structs. Inputs are decoded by json tag and
// checked against validate tags before the method runs:
//
//	type AdoptInput struct {
//	    Name string `json:"name" validate:"required"`
//	}
//
//	func (p *PetsPlugin) Adopt(call *plugin.Call, in AdoptInput) (AdoptOutput, error)
//
// # Configuration
//
// An exported Config field is filled from the project file, after defaults
// from struct tags and before validation:
//
//	type Config struct {
//	    BaseURL string        `yaml:"base_url" validate:"omitempty,url_format"`
//	    Timeout time.Duration `yaml:"timeout" default:"30s" validate:"gte=1ms"`
//	}
//
// # Resources
//
// call.Resource is the handle the step's headers.api_context selector chose,
// or the default resource. A function that creates a resource returns it in
// its output; the flow then saves it with save_from_response, e.g.
//
//	save_from_response:
//	  adminSession: session
//
// Resources implementing io.Closer are closed when the flow finishes.
// A plugin implementing ResourceProvider can supply the default resource.
//
// # Lifecycle
//
// Initializer and Shutdowner are called once per run, in registration order
// and reverse registration order respectively.
package plugin
