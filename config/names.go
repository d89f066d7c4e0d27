package config

// unnamedFile replaces names which are empty after cleaning.
const unnamedFile = "_unnamed_"
