// Package config reads TDP-lib's environment-variable configuration
// surface (spec.md §6) and wires it into the core components: the
// collection path list, the SQLite DSN, the variables store root, the
// override directory list, and the default rolling interval.
//
// Values are validated with github.com/go-playground/validator/v10,
// following the teacher's pkg/config/types.go struct-tag idiom
// (required, min, dive). Precedence is env over built-in default; there is
// no config file layer, since spec.md never names one for the core —
// only the out-of-scope CLI surface reads a `--config` flag, and that
// flag is the adapter's concern, not the core's.
package config
