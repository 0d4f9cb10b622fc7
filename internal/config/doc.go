// Package config loads lakeferry CLI configuration.
//
// Configuration is resolved in three layers, later layers overriding
// earlier ones:
//
//  1. Built-in defaults (Default)
//  2. A YAML configuration file (LoadFromFile)
//  3. Environment variables (LAKEFERRY_ prefix)
//
// Command-line flags are applied on top by the cmd package via Config.Merge.
// Byte sizes accept human-readable strings such as "256MB".
package config
