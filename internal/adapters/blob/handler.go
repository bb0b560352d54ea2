package blob

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler serves files from dir for URLs minted by signer. Mount it on a
// wildcard route named "ref", e.g. GET /blobs/*ref.
func Handler(signer *Signer, dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := CleanRef(c.Param("ref"))
		if err != nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		err = signer.Verify(ref, c.Query("expires"), c.Query("sig"))
		switch {
		case errors.Is(err, ErrURLExpired):
			c.AbortWithStatus(http.StatusGone)
			return
		case err != nil:
			log.Debug().Err(err).Str("module", "adapters.blob").Str("ref", ref).Msg("rejected blob request")
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Header("Cache-Control", "private, max-age=300")
		c.File(filepath.Join(dir, filepath.FromSlash(ref)))
	}
}
