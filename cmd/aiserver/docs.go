package main

// General API documentation for swaggo. The generated template lives in
// internal/httpapi/swagger.go and is served under the swagger build tag.
//
// @title           aiserver API
// @version         1.0
// @description     Text generation with a fine-tuned code model.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
