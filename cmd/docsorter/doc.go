// Command docsorter watches an inbox directory and files each scanned
// document under <output_root>/<category>/<filename>.
//
// `docsorter run` is the long-running sorter; `scan` sorts what is already in
// the inbox and exits. `check`, `extract` and `classify` help diagnose a setup
// without moving anything, and `config` manages the TOML configuration.
package main
