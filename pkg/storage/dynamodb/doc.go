/*
Package dynamodb implements storage.Store on a single DynamoDB table.

Every record is one item keyed by PK and SK. The JSON form of the record is kept
in the Data attribute and a Version counter guards read-modify-write updates.

	Record        PK                 SK              GSI1PK               GSI1SK
	user          USER#<id>          PROFILE#<id>    COMPANY#<assigned>   USER#<id>
	email index   EMAIL#<lower>      EMAIL           -                    -
	company       COMPANY#<id>       PROFILE#<id>    -                    -
	project       PROJECT#<id>       PROFILE#<id>    COMPANY#<company>    PROJECT#<id>
	application   APPLICATION#<id>   PROFILE#<id>    PROJECT#<project>    APPLICATION#<id>

Users and their email index item are written in one transaction, so email
uniqueness holds without a table scan. Grants live inside the user item.

# Usage

	client, err := dynamodb.NewClient(ctx, dynamodb.ClientConfig{Region: "us-east-1"})
	if err != nil {
		return err
	}
	store := dynamodb.NewStore(client, "eams")
*/
package dynamodb
