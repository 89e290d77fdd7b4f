// Package api provides the Runnable REST API.
//
//	@title						Runnable API
//	@version					1.0
//	@description				Runnables, their published images and the commit lifecycle between them
//	@BasePath					/
//	@securityDefinitions.apikey	RunnableToken
//	@in							header
//	@name						runnable-token
package api
