package api

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
)

// bindOptionalJSON decodes the request body into obj, accepting an empty body.
func bindOptionalJSON(ctx *gin.Context, obj interface{}) error {
	if ctx.Request.Body == nil {
		return nil
	}
	err := json.NewDecoder(ctx.Request.Body).Decode(obj)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
