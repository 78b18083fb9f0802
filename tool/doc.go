/*
Package tool defines the callables an agent can expose to a model. A tool is
a plain Go function taking a typed argument struct; its JSON parameter schema
is generated through reflection and exported to providers on demand.

# Design Decisions

  - Typed arguments: callables receive a struct decoded from the model's
    argument JSON, so tool authors never touch raw payloads.
  - Two callable shapes: func(ctx, Args) (string, error) for free tools and
    func(ctx, Args) (string, float64, error) for tools that report an
    incremental dollar cost. Anything else is rejected at construction.
  - Schema Generation: parameter schemas come from reflecting the argument
    struct; every property is required and additional properties are
    rejected, so providers can enforce strict argument shapes.
  - Functional Options: Name and Description are configured through options;
    the name defaults to the argument struct's type name.

# Usage

	type WeatherArgs struct {
		City string `json:"city" jsonschema:"description=City to look up"`
	}

	weather := tool.Must[WeatherArgs](
		func(ctx context.Context, args WeatherArgs) (string, error) {
			return lookup(ctx, args.City)
		},
		tool.Name("get_weather"),
		tool.Description("Look up the current weather for a city."),
	)
*/
package tool
