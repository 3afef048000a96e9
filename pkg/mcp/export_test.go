package mcp

// WriteTestLog exposes the log fixture to the external test package.
var WriteTestLog = writeTestLog
