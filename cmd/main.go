package main

import (
	"go-bank-transfers/app"
)

// @title           Go-Bank Transfers API
// @version         1.0
// @description     Idempotent money transfers between accounts.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
