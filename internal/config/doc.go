// Package config defines the format-agnostic run configuration: which
// integration to run, where its graph objects are stored, which steps are
// switched off, and where results are delivered.
//
// The `config.Model` is the single source of truth for the `app` package.
// Concrete loaders, such as the HCL one in `hcl_adapter`, live in separate
// packages and only have to fill the model.
package config
