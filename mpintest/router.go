package mpintest

import "github.com/gin-gonic/gin"

// setupRouter wires the platform endpoints onto a Gin engine.
func (p *Platform) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Registration and authentication protocol
	rps := router.Group("/rps/v2")
	{
		rps.POST("/user", p.registerUser)
		rps.GET("/signature/:mpinId", p.clientSecretShare)
		rps.POST("/pass1", p.pass1)
		rps.POST("/pass2", p.pass2)
		rps.POST("/authenticate", p.authenticate)
		rps.POST("/session", p.createSession)
		rps.POST("/codeStatus", p.codeStatus)
	}

	// Out-of-band verification
	verification := router.Group("/verification")
	{
		verification.POST("/email", p.sendVerificationEmail)
		verification.POST("/confirmation", p.confirmVerification)
		verification.POST("/quickcode", p.generateQuickCode)
	}

	// Designated-verifier signing
	dvs := router.Group("/dvs")
	{
		dvs.POST("/session", p.createSigningSession)
		dvs.GET("/session", p.fetchSigningSession)
		dvs.PUT("/session", p.updateSigningSession)
		dvs.POST("/session/abort", p.abortSigningSession)
		dvs.POST("/verify", p.verifySignatureEndpoint)
	}

	return router
}
