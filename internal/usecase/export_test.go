package usecase

// GenerateCodeFrom exposes the reader-driven generator to the external test package.
var GenerateCodeFrom = generateCode
