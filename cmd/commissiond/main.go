// Command commissiond runs the commission marketplace API.
//
// @title                       Commission API
// @version                     1.0
// @description                 Creators publish price plans, requesters commission works, creators deliver, requesters confirm payment.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

func main() {
	Execute()
}
