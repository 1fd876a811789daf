// Package lambdahttp serves an http.Handler behind API Gateway proxy events.
package lambdahttp

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// HandlerFunc is the signature expected by lambda.Start.
type HandlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Handler adapts h to API Gateway proxy requests. The response carries
// multi-value headers so every Set-Cookie survives the trip.
func Handler(h http.Handler) HandlerFunc {
	return httpadapter.New(h).ProxyWithContext
}
